package plugin

// HTTPProvider is implemented by modules that expose REST API routes.
type HTTPProvider interface {
	Routes() []Route
}

// StoreConsumer is implemented by modules that need persistent storage.
// The core calls SetStore before Init.
type StoreConsumer interface {
	SetStore(s Store)
}

// BusConsumer is implemented by modules that publish or subscribe to events.
// The core calls SetBus before Init.
type BusConsumer interface {
	SetBus(b Bus)
}
