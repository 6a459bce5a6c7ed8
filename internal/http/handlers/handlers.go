// Handler wiring.
package handlers

// Handlers groups HTTP endpoints for users and newsletter delivery. It
// depends on abstract service interfaces to keep transport concerns separate
// from business logic.
type Handlers struct {
	userSvc UserService
	newsSvc NewsletterService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(userSvc UserService, newsSvc NewsletterService) *Handlers {
	return &Handlers{userSvc: userSvc, newsSvc: newsSvc}
}
