// Package shape bounds tool results before they cross the MCP transport.
//
// Every value is rendered as indented JSON text. Two independent limits apply:
//
//   - Text longer than the text limit (default 20000 characters) is cut and
//     suffixed with TruncationMarker. The structured payload becomes a summary
//     with originalChars and returnedChars.
//   - Otherwise, an object whose compact JSON exceeds the structured limit
//     (default 4000 characters) keeps its full text, but the structured
//     payload becomes a summary listing up to 50 of its top-level keys.
//
// Project applies a JMESPath expression before shaping so a caller can ask
// for just the fields it needs.
package shape
