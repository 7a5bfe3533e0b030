// Package youtube talks to the video platform: the OAuth2 authorization code
// flow, token refresh and revocation, and the connected channel lookup.
package youtube
