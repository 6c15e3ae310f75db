// Package util holds internal helpers shared by the tool, session and agent
// packages: JSON schema reflection and validation, and prompt templating.
package util
