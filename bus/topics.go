package bus

// Command topics (backend -> bridge). QoS1, at-least-once: consumers must
// deduplicate by request_id.
const (
	TopicCmdDispense  = "kiosk/cmd/dispense"
	TopicCmdReturn    = "kiosk/cmd/return"
	TopicCmdAdminTest = "kiosk/cmd/admin_test/motor"
)

// Event topics (bridge / rfid reader -> backend).
const (
	TopicEvtDispense  = "kiosk/evt/dispense"
	TopicEvtReturn    = "kiosk/evt/return"
	TopicEvtAdminTest = "kiosk/evt/admin_test/motor"

	TopicEvtCardScan = "kiosk/evt/rfid/card_scan"
	TopicEvtToolScan = "kiosk/evt/rfid/tool_scan"

	TopicEvtSystemFault  = "kiosk/evt/system/fault"
	TopicEvtSystemStatus = "kiosk/evt/system/status"
)
