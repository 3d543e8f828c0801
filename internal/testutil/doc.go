// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing provider stream fixtures and scripted
// transports. They are not intended for production usage.
package testutil
