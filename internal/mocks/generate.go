// Package mocks provides gomock doubles for the auth ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	strategy := mocks.NewMockStrategy(ctrl)
//	strategy.EXPECT().Run(gomock.Any()).Return(domainauth.Failure(), nil)
package mocks

// Strategy, SessionState and Responder drive the chain and guard tests.
// SessionStore, CredentialStore and FlowStateStore back the service and strategy tests.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=ports_mock.go github.com/target/mmk-gatekeeper/internal/ports Strategy,SessionState,Responder,SessionStore,CredentialStore,FlowStateStore
