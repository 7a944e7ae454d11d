// Package boxing decides, for every parameter of a method, how the profiler
// has to box the argument before handing it back to the agent.
//
// The decision is carried as a 32-bit token per parameter. Real metadata
// tokens (TypeDef, TypeRef) name the value type to box. Everything else is a
// sentinel: a small ordinal OR'd with 0x7f000000, a high byte no metadata
// table uses. Inside the agent the decision is a Decision value; it only
// becomes a token at the native boundary.
package boxing
