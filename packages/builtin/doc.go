// Package builtin provides the functions available inside {{ }} placeholders.
//
// Available functions:
//   - uuid(): a random UUID v4
//   - now(): the current time in RFC 3339
//   - timestamp(), timestampMs(): the current Unix time
//   - date(layout): the current UTC date, "2006-01-02" by default
//   - random(min, max): a random integer in [min, max]
//   - randomString(length), randomEmail()
//   - base64(value), base64Decode(value), sha256(value)
//   - urlEncode(value), urlDecode(value)
//   - env(name): an environment variable
//
// Arguments may be quoted with single or double quotes.
package builtin
