// Package env loads variables and substitutes them into request text.
//
// Placeholders use the {{...}} syntax:
//   - {{name}}: a variable from the config file, a .env file or --var
//   - {{$NAME}}: an environment variable
//   - {{uuid()}}: a built-in function, see package builtin
package env
