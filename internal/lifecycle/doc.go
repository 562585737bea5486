// Package lifecycle folds ride-lifecycle inputs into role state.
//
// Two inputs reach the same state: push notifications from the realtime
// channel (ReduceDriver, ReduceRider) and results of REST commands (the
// Apply* functions). Every function is pure: it takes a state value and
// returns a new one, never touching the argument's slices or pointers.
//
// Field ownership:
//
//	DriverState.Online        go-online / go-offline results
//	DriverState.IncomingRide  ride_assigned_to_driver (set), accept / reject results (clear)
//	DriverState.CurrentRide   accept result (set), start / complete results (status only),
//	                          ride_completed_for_driver (clear)
//	DriverState.Assignments   ride_assigned_to_driver (upsert), reject result and
//	                          ride_completed_for_driver (remove)
//	RiderState.Rides, .CurrentRide  request-ride, list and select results only
//	History                   history loader only
//	Log                       everything; observational
//
// Notifications never rewrite a ride status. The backend sends no sequence
// numbers, so a completion that overtakes its assignment is not reconciled:
// the later assignment is inserted as new.
package lifecycle
