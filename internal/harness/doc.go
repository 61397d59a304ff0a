// Package harness runs capture scenarios written in YAML against a fresh
// in-memory store and checks the resulting operation log and table state.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	catalog: catalog.yaml          # relative to the scenario file
//	tx_id: tx-fixed                # optional; default "test-tx-default"
//	clock_start: 1700000000000     # optional; 0 leaves timestamps NULL
//	register:
//	  - table: main.items
//	    enabled: false
//	transactions:
//	  - steps:
//	      - op: insert
//	        table: main.items
//	        values: { id: "1", content: hello }
//	      - op: update
//	        table: main.items
//	        key: { id: "1" }
//	        set: { content: world }
//	      - op: delete
//	        table: main.items
//	        key: { id: "1" }
//	      - op: toggle
//	        table: main.items
//	        enabled: false
//	    rollback: false
//	    expect_error: PRIMARY_KEY_IMMUTABLE
//	assertions:
//	  - type: log_count
//	    count: 2
//	  - type: log_order
//	    entries: ["INSERT main.items", "UPDATE main.items"]
//	  - type: log_contains
//	    table: main.items
//	    optype: UPDATE
//	    key: { id: "1" }
//	    new_row: { content: world }
//	  - type: final_state
//	    table: main.items
//	    where: { id: "1" }
//	    expect: { content: world }
//
// # Assertion Types
//
//   - log_count: the log holds exactly count entries
//   - log_order: the log, in sequence order, is exactly the listed
//     "<OPTYPE> <namespace>.<table>" entries
//   - log_contains: some entry matches table, optype, key and the given
//     subset of its new and old row images
//   - final_state: the row matching where has the expected values, or no
//     row matches when absent is true
//
// # Deterministic Runs
//
// Every scenario runs with a fixed transaction id and an optional step
// clock, so the same scenario always produces a byte-identical log. That
// is what golden snapshots (RunWithGolden) compare against.
package harness
