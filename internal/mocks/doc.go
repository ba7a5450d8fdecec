// Package mocks provides shared scripted doubles for testing.
//
// # Usage
//
//	import "formpilot/internal/mocks"
//
//	func TestSomething(t *testing.T) {
//	    opener := &mocks.FormOpener{Build: func(string) *mocks.FormDriver {
//	        return &mocks.FormDriver{Questions: []*mocks.FormQuestion{...}}
//	    }}
//	    // Use opener in test...
//	}
//
// # Available Mocks
//
//   - FormQuestion, FormDriver, FormOpener: scripted pkg/form implementations
//
// The recording chat transport is in the chatmock subpackage so that mocks never imports pkg/chat.
package mocks
