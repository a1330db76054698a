// Package pipeline runs the ordered stages that follow the specialist join.
//
// Stages are independent and best-effort: QA review, action execution,
// usage tracking, agent log persistence, event publishing and any
// configured outbound webhooks. A failing or panicking stage is logged and
// recorded, and the remaining stages still run.
//
// # Webhook Contract
//
// Webhook stages receive a JSON summary of the finished run:
//
//	POST <webhook_url>
//	Content-Type: application/json
//
//	{
//	  "conversation_id": "...",
//	  "message_id": "...",
//	  "agent_id": "team-3",
//	  "response": "...",
//	  "category": "...",
//	  "sentiment": "...",
//	  "actions": [ ... ],
//	  "token_usage": { "input": 0, "output": 0 }
//	}
//
// Any 2xx status is success. Other statuses and transport errors are retried
// up to the configured count.
package pipeline
