// Package queryir is a small, backend-neutral description of the listing
// queries storebus runs against its tables.
//
// Callers describe what they want (a source table, equality filters, an
// ordering) and querysql turns that into parameterized SQL. Keeping the
// description separate lets the store build filters from catalog.Filter
// without string concatenation, and lets Validate reject anything that
// is not a plain identifier before it reaches SQL.
//
// Query and Predicate are sealed: only the types in this package
// implement them.
//
//	q := queryir.Select{
//	    From:   "installed_modules",
//	    Filter: queryir.And{Predicates: []queryir.Predicate{
//	        queryir.Equals{Field: "type", Value: ir.IRString("skin")},
//	        queryir.Equals{Field: "enabled", Value: ir.IRBool(true)},
//	    }},
//	}
package queryir
