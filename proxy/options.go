package proxy

// Options controls what the generator writes.
type Options struct {
	// EmitVirtualRedirectors adds, for every virtual function, a wrapper
	// named after the function that dispatches through the vtable slot,
	// next to the "_impl" wrapper that calls the fixed address.
	EmitVirtualRedirectors bool

	// ZeroInitializeMembers appends default initializers to scalar,
	// pointer, enum and scalar-array members.
	ZeroInitializeMembers bool

	// EmitLayoutGuards adds static_assert checks of the size and member
	// offsets to every definition.
	EmitLayoutGuards bool

	// EmitPrelude writes the runtime helpers the wrappers call.
	EmitPrelude bool

	// EmitEnums writes definitions of the enums used by emitted members.
	EmitEnums bool

	// PointerSize overrides the database pointer width when non-zero.
	PointerSize int

	// Types restricts output to these types and what they contain by value.
	Types []string
}
