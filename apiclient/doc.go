// Package apiclient is the HTTP request interceptor every API call goes
// through.
//
// It attaches the stored bearer token, normalizes failures into *APIError and
// turns a 401 on an authenticated request into a forced logout through the
// LogoutTrigger it was built with. AuthAPI implements the auth backend on top
// of the same client.
package apiclient
