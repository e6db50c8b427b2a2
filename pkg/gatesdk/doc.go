// Package gatesdk holds the wire types of the eventgate HTTP API and a small
// client for it.
//
// The server renders its responses from these types, so a client built on
// this package stays in lock-step with the routes it calls.
//
// Basic usage:
//
//	client := gatesdk.NewSDKClient("https://gate.example.com")
//
//	session, err := client.Login(ctx, "organizer@example.com", "secret", "")
//	if err != nil {
//	    var apiErr *gatesdk.APIError
//	    if errors.As(err, &apiErr) && apiErr.Code == gatesdk.CodeOTPRequired {
//	        // ask for the one-time code and retry
//	    }
//	    return err
//	}
//
//	me, err := session.Me(ctx)
//
// Sessions refresh their access token shortly before it expires. Every
// protected route that denies access answers 404 NOT_FOUND, so callers see
// an *APIError with Code CodeNotFound whether the route is missing, the
// session is stale, or the role does not fit.
package gatesdk
