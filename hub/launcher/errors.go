package launcher

import "fmt"

// LoadError indicates that an application's code unit could not be
// resolved, either from the registry or from the install directory.
type LoadError struct {
	Module string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot load module %q: %v", e.Module, e.Err)
	}
	return fmt.Sprintf("cannot load module %q", e.Module)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ContractError indicates that a resolved unit does not expose the start
// capability required of applications.
type ContractError struct {
	Module string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("module %q does not implement the start contract", e.Module)
}
