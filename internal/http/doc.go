// Package http exposes the cart scheduler over a JSON API routed with chi.
//
// Public endpoints:
//   - GET /healthz, GET /readyz: liveness and database readiness probes.
//   - POST /auth/login: body {"login","password"} where login is a username or
//     email. Rate limited per client IP. Responds with access and refresh tokens.
//   - POST /auth/refresh, POST /auth/logout: body {"refresh_token"}.
//   - GET /register/validate/{token}, POST /register: invite redemption.
//
// Every other endpoint requires an `Authorization: Bearer <access token>`
// header. Carts, events and users are administered by admins; meeting point
// mutations, exports aside, and statistics need the fieldserviceplanner or
// admin role. Bookings may be created by any user for up to two participants
// and deleted by any of those participants.
//
// Errors use the errorResponse envelope defined in responder.go. Validation
// failures answer 422 with a per field map; a full cart answers 409 with the
// CART_FULL code.
package http
