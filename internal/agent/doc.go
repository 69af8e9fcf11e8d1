// Package agent implements the scripted development agent behind the
// helix-backend chat endpoint.
//
// The agent does not reason and does not execute tools. It replays a
// scenario: a canned sequence of retrieval results, tool invocations, and
// reply text matched against the incoming user message. Scenarios come from
// a TOML script file; without one the agent falls back to a built-in echo
// scenario, which is enough to exercise the whole client stack end to end.
//
// A scenario file looks like:
//
//	[[scenario]]
//	match = "enzyme"
//	replies = ["Looking that up.", "RuBisCO catalyzes carbon fixation."]
//
//	[scenario.retrieval]
//	query = "enzyme carbon fixation"
//	[[scenario.retrieval.result]]
//	text = "RuBisCO is the most abundant enzyme on Earth."
//	score = 0.93
//	source = "knowledge/enzymes.md"
//
//	[[scenario.tool]]
//	name = "terminal"
//	input = "grep -r rubisco knowledge/"
//	output = "knowledge/enzymes.md: RuBisCO ..."
//
// Matching is case-insensitive substring; a scenario with an empty match is
// the default. Run streams the scenario's events on a channel in protocol
// order: retrieval, tools, then reply tokens with response breaks between
// multiple replies.
package agent
