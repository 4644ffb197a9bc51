// Package cypher talks to the Cypher testnet web application. The site
// exposes its features as Next.js server actions: every call is a POST to
// the same endpoint with a next-action header naming the action and a JSON
// array of arguments as body. Responses are line oriented and the payload
// sits on the line prefixed with "1:".
package cypher
