package bound

// Program is the bound output of the front end: every function in program
// order with its lowered body.
type Program struct {
	Functions []*FunctionSymbol
	Bodies    map[*FunctionSymbol]*BlockStatement

	// Main is the explicitly declared main function, if any.
	Main *FunctionSymbol
	// Script is the synthesized top-level function.
	Script *FunctionSymbol
}

// NewProgram creates an empty program.
func NewProgram() *Program {
	return &Program{Bodies: make(map[*FunctionSymbol]*BlockStatement)}
}

// Add appends fn with its body.
func (p *Program) Add(fn *FunctionSymbol, body *BlockStatement) {
	if p.Bodies == nil {
		p.Bodies = make(map[*FunctionSymbol]*BlockStatement)
	}
	p.Functions = append(p.Functions, fn)
	p.Bodies[fn] = body
}

// Body returns the body bound to fn.
func (p *Program) Body(fn *FunctionSymbol) (*BlockStatement, bool) {
	body, ok := p.Bodies[fn]
	return body, ok
}

// Entry returns the function execution starts at: main if declared,
// otherwise the script function. It is nil when neither exists.
func (p *Program) Entry() *FunctionSymbol {
	if p.Main != nil {
		return p.Main
	}
	return p.Script
}

// Function returns the function with the given name.
func (p *Program) Function(name string) (*FunctionSymbol, bool) {
	for _, fn := range p.Functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return nil, false
}
