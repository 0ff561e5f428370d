// Package assertions checks captured responses against expectations.
//
// Expectations are written as `<subject> <operator> [value]`:
//   - Status code checks (status == 200)
//   - Header validation (header content-type contains json)
//   - Body content checks (body contains "success")
//   - gjson path queries (body.data.id exists)
//   - JSON Schema validation (body schema ./schema.json)
//   - Length checks (body.items length 10)
//   - Type checks (body.items type array)
//
// ValidateSchema validates a whole response body against a JSON schema.
package assertions
