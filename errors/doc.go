/*
Package errors implements custom error interfaces for safeq.

The idea is to reuse as many errors from this package as possible and define
custom package errors only when absolutely necessary. The coordination
taxonomy (validation, conflict, quota, in progress, broadcast, reverted,
timeout) lives here so that every extension and every caller can test for it
without importing the extension that produced it.

If you want to register a custom error - use Register(code, description).
For reusing errors - use Errxxx.New and Errxxx.Newf.
Code allows to distinguish types of errors on the client side and act
accordingly. HTTPInfo maps it to an HTTP response.

There is also support for stacktraces. Please ensure you create the custom
error using ErrXyz.New("...") or errors.Wrap(err, "...") at the point of
creation to ensure we attach a stacktrace. If you wrap multiple times, we only
record the first wrap with the stacktrace.

Once you have an error, you can use `fmt.Printf/Sprintf` to get more context
for the error
	%s is just the error message
	%+v is the full stack trace
*/
package errors
