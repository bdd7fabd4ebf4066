// Package client is the request executor between callers and a text
// generation provider. A [Client] builds the request, retries transient 503
// answers, maps terminal 429 and 400 answers onto [ErrRateLimited] and
// [ErrMalformedRequest], and forwards reported token usage to a
// [cost.Accountant].
//
// The entry point is [New], which takes a [ProviderFactory], an API key and
// functional options such as [WithAccountant], [WithRetryStrategy] and
// [WithMiddleware]. [Client.Generate] returns the whole text of a single-shot
// request; [Client.GenerateStream] yields text chunks as they arrive.
package client
