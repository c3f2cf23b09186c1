package tools

import "strings"

// Requirement property shapes. Address lists are arrays of strings, single
// addresses are strings, counts and measurements are numbers.
var requirementProperties = map[string]JSONSchema{
	"pickup_addresses": {
		Type:        "array",
		Items:       &JSONSchema{Type: "string"},
		Description: "Pickup addresses for the job, in order",
	},
	"dropoff_addresses": {
		Type:        "array",
		Items:       &JSONSchema{Type: "string"},
		Description: "Dropoff addresses for the job, in order",
	},
	"customer_address": {
		Type:        "string",
		Description: "Customer's address where the job takes place",
	},
	"number_of_people": {
		Type:        "number",
		Description: "Number of people required for the job",
	},
	"number_of_rooms": {
		Type:        "number",
		Description: "Number of rooms the job covers",
	},
	"number_of_vehicles": {
		Type:        "number",
		Description: "Number of vehicles involved in the job",
	},
	"square_meters": {
		Type:        "number",
		Description: "Approximate area of the job in square meters",
	},
}

// ResolveSchema specializes a generic tool schema for one service: each
// declared requirement becomes a required schema property, and job_scope is
// constrained to the service's declared options. The input schema is never
// mutated; the result is a fresh instance per (tool, service) pair.
//
// Unknown requirement strings degrade to a described string property rather
// than failing, so a new requirement added upstream cannot break quoting.
func ResolveSchema(base *JSONSchema, requirements []string, jobScopeOptions []string) *JSONSchema {
	resolved := base.Clone()
	if resolved == nil {
		resolved = &JSONSchema{Type: "object"}
	}
	if resolved.Type == "" {
		resolved.Type = "object"
	}
	if resolved.Properties == nil {
		resolved.Properties = make(map[string]JSONSchema)
	}

	for _, requirement := range requirements {
		requirement = strings.TrimSpace(requirement)
		if requirement == "" {
			continue
		}
		prop, known := requirementProperties[requirement]
		if !known {
			prop = JSONSchema{
				Type:        "string",
				Description: "Value for " + strings.ReplaceAll(requirement, "_", " "),
			}
		}
		resolved.Properties[requirement] = *prop.Clone()
		if !containsString(resolved.Required, requirement) {
			resolved.Required = append(resolved.Required, requirement)
		}
	}

	if len(jobScopeOptions) > 0 {
		scope := resolved.Properties["job_scope"]
		if scope.Type == "" {
			scope.Type = "string"
		}
		if scope.Description == "" {
			scope.Description = "Scope of the job for this service"
		}
		scope.Enum = append([]string(nil), jobScopeOptions...)
		resolved.Properties["job_scope"] = scope
	}

	return resolved
}

func containsString(list []string, value string) bool {
	for _, entry := range list {
		if entry == value {
			return true
		}
	}
	return false
}
