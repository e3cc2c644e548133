// Package host lets sandboxed wasm canisters issue inter-canister calls,
// including HTTP outcalls through the management canister.
//
// A Bridge registers an "ic0" host module in a wazero runtime. Guests build a
// call with call_new, call_data_append and call_cycles_add128, then run it
// with call_perform, which blocks until the Caller returns. The result is
// read back through msg_reply_data_* or msg_reject_*.
//
//	bridge := host.New(agent, host.WithAllowedCallees(principal.ManagementCanister()))
//	if _, err := bridge.Instantiate(ctx, rt); err != nil {
//		return err
//	}
//	guest, err := rt.InstantiateWithConfig(ctx, wasm, wazero.NewModuleConfig().WithName("canister-1"))
//
// Misuse of the system API, such as a second call_new or an out-of-range
// memory access, traps the guest. Call state is kept per guest module name;
// Release drops it.
package host
