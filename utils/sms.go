package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
)

// sms request payload for the gateway HTTP API
type smsRequest struct {
	SenderID string   `json:"sender_id"`
	To       []string `json:"to"`
	Message  string   `json:"message"`
}

// SendSMS sends a text through the SMS gateway HTTP API. Best-effort;
// callers log failures and move on.
func SendSMS(to, message string) error {
	apiURL := os.Getenv("SMS_API_URL")   // e.g. https://api.smsleopard.com/v1/sms/send
	apiKey := os.Getenv("SMS_API_KEY")   // bearer token
	sender := os.Getenv("SMS_SENDER_ID") // e.g. OMOTECHY

	if apiURL == "" || apiKey == "" || sender == "" {
		log.Println("Missing SMS_API_URL, SMS_API_KEY, or SMS_SENDER_ID")
		return fmt.Errorf("missing required sms config")
	}

	payload := smsRequest{
		SenderID: sender,
		To:       []string{to},
		Message:  message,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Failed to marshal sms payload: %v", err)
		return err
	}

	req, err := http.NewRequest("POST", apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		log.Printf("Failed to create request: %v", err)
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		log.Printf("Failed to send sms: %v", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		log.Printf("SMS gateway returned status %s", resp.Status)
		return fmt.Errorf("sms gateway error: %s", resp.Status)
	}

	log.Printf("SMS successfully sent to %s", to)
	return nil
}
