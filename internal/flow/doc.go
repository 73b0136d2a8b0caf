// Package flow defines conversation test flows and parses them from JSON.
//
// A flow is an ordered list of steps. Each step carries one user utterance
// and the validation rules applied to the agent's reply. Rules come from two
// places in a document: the validation_criteria shorthand (field to literal,
// or field to rule body) and the explicit validation_rules list. Shorthand
// rules are emitted first, in document key order.
//
// Both snake_case keys and camelCase keys are accepted:
//
//	{
//	  "flow_id": "billing",
//	  "agent_id": "projects/p/locations/global/agents/a",
//	  "steps": [
//	    {
//	      "user_input": "I want to pay my bill",
//	      "validation_criteria": {"intent": "pay_bill"},
//	      "validation_rules": [
//	        {"field": "intent_confidence", "operator": "gte", "expected_value": 0.8, "assertion_level": "warning"}
//	      ]
//	    }
//	  ]
//	}
package flow
