// Package http exposes the voting services over JSON and WebSocket.
//
// Every JSON response carries a boolean "success". Successful bodies put the
// payload under "data"; failures use {"success":false,"error_code","message","errors"}
// where error_code is one of AUTH_UNAUTHORIZED, AUTH_INVALID_CREDENTIALS,
// AUTH_SESSION_EXPIRED, FORBIDDEN, ACCOUNT_BLOCKED, ACCOUNT_PENDING,
// VOTING_CLOSED, NOT_FOUND, BAD_REQUEST, ALREADY_EXISTS, CONFIG_CONFLICT,
// RATE_LIMITED or INTERNAL.
//
// Sessions travel as "Authorization: Bearer <token>" or in the session_token
// (student) and admin_session_token (administrator) cookies. Route access is
// declared in router.go: public, optional session, any session, student,
// admin and super admin.
//
// GET /admin/transactions?format=csv streams the ledger as CSV. GET /ws
// upgrades to a WebSocket that carries event envelopes
// {"seq","type","payload","created_at"}; administrators may pass ?after=N to
// replay stored events first.
package http
