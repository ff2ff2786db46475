// Package devidentity is an in-memory identity service speaking the same HTTP
// contract as the production backend. It exists for local development and for
// exercising the HTTP gateway in tests.
//
// Routes:
//
//	POST   /auth/register  {email, password}            -> 201 {user, token}
//	POST   /auth/login     {email, password}            -> 200 {user, token}
//	GET    /auth/me                                     -> 200 user
//	PATCH  /auth/me        {display_name, avatar_url, email} -> 200 profile fields
//	DELETE /auth/me                                     -> 204
//	POST   /auth/logout                                 -> 204
//
// Errors are returned as {"error": "<message>"}.
//
// # What this package must NOT do
//
//   - Persist anything; a restart forgets every account.
//   - Serve production traffic.
package devidentity
