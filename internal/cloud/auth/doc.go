// Package auth implements the credential pipeline for the JCI Hitachi cloud.
//
// A session is opened in four request/response steps, each a single HTTPS
// call with no internal retry:
//
//  1. Login: Cognito user pool InitiateAuth, with the password or a held
//     refresh token, yielding access/ID/refresh tokens.
//  2. FetchIdentity: Cognito GetUser, flattening the attribute list and
//     extracting the account and host identity ids.
//  3. FetchCredentials: Cognito identity pool GetCredentialsForIdentity,
//     exchanging the ID token for temporary signed credentials used only
//     to open the broker session.
//  4. ListDevices: the vendor IoT API device listing, turned into a
//     thing.Directory.
//
// Sequencing and retry belong to the session controller. Tokens and
// credentials live in memory only.
package auth
