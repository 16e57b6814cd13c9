// Package api is the authenticated request pipeline for the REST API.
//
// Every call carries the current access token. A 401 triggers one
// coordinated refresh and one resend of that call; if the refresh is denied
// the credentials are cleared and the navigator is told to show the login.
// Any other failure becomes an *APIError with a localized message.
package api
