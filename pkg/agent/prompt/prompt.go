// Package prompt renders business-specific instruction templates.
package prompt

import (
	"strings"
)

// Values are the facts substituted into an instruction template.
type Values struct {
	BusinessName string
	BusinessInfo string
	Services     []string
	ToolNames    []string
}

// Render substitutes {business_name}, {business_info}, {services}, and
// {tools} placeholders. Unknown placeholders are left untouched so template
// typos are visible rather than silently blanked.
func Render(template string, v Values) string {
	replacer := strings.NewReplacer(
		"{business_name}", v.BusinessName,
		"{business_info}", v.BusinessInfo,
		"{services}", strings.Join(v.Services, ", "),
		"{tools}", strings.Join(v.ToolNames, ", "),
	)
	return replacer.Replace(template)
}
