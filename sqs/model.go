package sqs

// Notification identifies one newly created object in the raw bucket.
type Notification struct {
	Bucket        string
	Key           string
	ReceiptHandle *string
}

// SQS Message Format for queues subscribed via an SNS topic. The S3 event
// itself travels as an escaped JSON string in Message.
type Body struct {
	Message string `json:"Message"`
}
