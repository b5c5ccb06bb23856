// Package source holds the data-source strategies the scheduler uses to
// fetch a user's due items.
//
// CourseworkSource reads assignments from a Classroom-style REST API with an
// OAuth credential obtained from credential.Manager. SessionSource signs in
// to a site with the user's login and secret and reads a JSON list of
// borrowed items through the resulting session cookie.
package source
