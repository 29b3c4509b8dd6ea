// Package vm implements the Paltry runtime object model.
//
// This package contains:
//   - the tagged Value representation shared by code and data
//   - the per-VM symbol table with binding cells
//   - the native function bridge and the builtin functions
//   - canonical rendering and strict equality
package vm
