// Package testutil contains helper builders and stubs used across tests to
// reduce boilerplate when constructing conversations, scripting gateway
// decisions and injecting store or tool failures. They are not intended for
// production usage.
package testutil
