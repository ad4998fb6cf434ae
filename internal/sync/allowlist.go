package sync

// allowedProperties is the declared set of node property names that
// update_node_property may patch. The property name ends up inside a
// generated mutation, so anything outside this set is rejected before it
// reaches the store.
var allowedProperties = map[string]struct{}{
	"name":        {},
	"description": {},
	"status":      {},
	"severity":    {},
	"owner":       {},
	"dueDate":     {},
	"category":    {},
	"maturity":    {},
}

// PropertyAllowed reports whether update_node_property may patch the
// given property name.
func PropertyAllowed(name string) bool {
	_, ok := allowedProperties[name]
	return ok
}
