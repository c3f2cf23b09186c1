package tools

import (
	"reflect"
	"testing"
)

func baseQuoteSchema() *JSONSchema {
	return &JSONSchema{
		Type: "object",
		Properties: map[string]JSONSchema{
			"service_name": {Type: "string", Description: "Name of the service to quote"},
		},
		Required: []string{"service_name"},
	}
}

func TestResolveSchemaAddsRequirements(t *testing.T) {
	resolved := ResolveSchema(baseQuoteSchema(), []string{"pickup_addresses", "number_of_people"}, nil)

	pickup, ok := resolved.Properties["pickup_addresses"]
	if !ok {
		t.Fatalf("pickup_addresses missing from resolved properties")
	}
	if pickup.Type != "array" || pickup.Items == nil || pickup.Items.Type != "string" {
		t.Errorf("pickup_addresses = %+v, want array of string", pickup)
	}

	people, ok := resolved.Properties["number_of_people"]
	if !ok {
		t.Fatalf("number_of_people missing from resolved properties")
	}
	if people.Type != "number" {
		t.Errorf("number_of_people type = %q, want number", people.Type)
	}

	want := []string{"service_name", "pickup_addresses", "number_of_people"}
	if !reflect.DeepEqual(resolved.Required, want) {
		t.Errorf("required = %v, want %v", resolved.Required, want)
	}
}

func TestResolveSchemaUnknownRequirementDegradesToString(t *testing.T) {
	resolved := ResolveSchema(baseQuoteSchema(), []string{"piano_count"}, nil)

	prop, ok := resolved.Properties["piano_count"]
	if !ok {
		t.Fatalf("piano_count missing from resolved properties")
	}
	if prop.Type != "string" {
		t.Errorf("piano_count type = %q, want string", prop.Type)
	}
	if prop.Description == "" {
		t.Errorf("piano_count should carry a description")
	}
}

func TestResolveSchemaConstrainsJobScope(t *testing.T) {
	options := []string{"full house", "few items"}
	resolved := ResolveSchema(baseQuoteSchema(), nil, options)

	scope, ok := resolved.Properties["job_scope"]
	if !ok {
		t.Fatalf("job_scope missing from resolved properties")
	}
	if !reflect.DeepEqual(scope.Enum, options) {
		t.Errorf("job_scope enum = %v, want %v", scope.Enum, options)
	}
	if scope.Type != "string" {
		t.Errorf("job_scope type = %q, want string", scope.Type)
	}
}

func TestResolveSchemaDoesNotMutateBase(t *testing.T) {
	base := baseQuoteSchema()
	before := base.Clone()

	first := ResolveSchema(base, []string{"pickup_addresses"}, []string{"full house"})
	second := ResolveSchema(base, []string{"square_meters"}, []string{"deep clean"})

	if !reflect.DeepEqual(base, before) {
		t.Fatalf("base schema mutated by resolution: %+v", base)
	}
	if _, ok := first.Properties["square_meters"]; ok {
		t.Errorf("first resolution leaked into by second")
	}
	if _, ok := second.Properties["pickup_addresses"]; ok {
		t.Errorf("second resolution inherited first's requirement")
	}
}

func TestResolveSchemaNilBase(t *testing.T) {
	resolved := ResolveSchema(nil, []string{"customer_address"}, nil)
	if resolved.Type != "object" {
		t.Errorf("type = %q, want object", resolved.Type)
	}
	if _, ok := resolved.Properties["customer_address"]; !ok {
		t.Errorf("customer_address missing from resolved properties")
	}
}
