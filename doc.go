// Package dispatchboard provides reactive stores for a vehicle dispatch board
// and a product cart, backed by a remote data source.
//
// A store keeps authoritative state in [reactive.Cell] values, exposes
// filtered and aggregated [reactive.Derived] views over them, and coordinates
// asynchronous loads and optimistic mutations against a [remote.Source].
//
// # Quick Start
//
// Create a store over the dispatch API and react to its state:
//
//	src, _ := remote.NewHTTPSource("http://localhost:3000")
//	store, _ := dispatchboard.NewBoardStore(dispatchboard.WithSource(src))
//
//	store.Watch("loading", func(s *reactive.Scope) error {
//	    slog.Info("board", "loading", store.IsLoading().Read(s), "error", store.Error().Read(s))
//	    return nil
//	})
//
//	store.LoadAll(ctx, dispatchboard.LoadOptions{})
//	store.Wait()
//
// # Loads
//
// A load raises the loading flag and clears the error synchronously, then
// calls the source in the background. Success replaces the collection
// wholesale; failure leaves it untouched and stores the failure message in
// the error cell. Loads are neither coalesced nor cancelled by the store:
// when two loads of one collection overlap, the one completing last wins.
//
// # Mutations
//
// Mutations such as [BoardStore.AssignVehicle] copy-and-patch one entity into
// a new collection value, so every derived view reflects the change before
// any network round trip. The patch is then persisted; a failed persist sets
// the error cell but never reverts the local change.
//
// Journey status changes are not validated against the lifecycle order:
// [BoardStore.UpdateJourneyStatus] applies any known status.
//
// # Testing Hooks
//
// [LoadOptions] carries the source's testing hooks: an artificial delay and a
// forced failure. Loads take them per call, mutations from
// [WithPersistOptions].
package dispatchboard
