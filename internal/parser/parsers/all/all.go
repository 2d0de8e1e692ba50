// Package all imports all available source drivers for side-effect registration.
//
// Import this package from your main to ensure all drivers are registered:
//
//	import _ "github.com/Vodeneev/crashwatch/internal/parser/parsers/all"
package all

import (
	_ "github.com/Vodeneev/crashwatch/internal/parser/parsers/browser"
	_ "github.com/Vodeneev/crashwatch/internal/parser/parsers/fixture"
)
