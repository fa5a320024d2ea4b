// Package validate decides whether two sets of query outputs agree.
//
// A Comparator checks one query: column arity, then row counts, then rows
// pairwise under value.Compare, recording mismatches up to a cap. A Suite
// runs the Comparator over every query of a stream and collects the ids
// that failed.
package validate
