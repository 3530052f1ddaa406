package utils

// Guard releases a resource when the function that acquired it returns early. Defer OnFail
// right after acquiring, and call Success once the resource is handed off:
//
//	guard := NewGuard(mu.RUnlock)
//	defer guard.OnFail()
//	if err != nil {
//		return nil, err
//	}
//	guard.Success()
type Guard struct {
	OnFail  func()
	success bool
}

// NewGuard returns a Guard that runs onFailCleanup unless Success is called first.
func NewGuard(onFailCleanup func()) *Guard {
	ret := &Guard{}
	ret.OnFail = func() {
		if !ret.success {
			onFailCleanup()
		}
	}
	return ret
}

// Success hands the resource off; OnFail becomes a no-op.
func (guard *Guard) Success() {
	guard.success = true
}
