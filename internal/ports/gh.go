package ports

import "encoding/json"

func parseGhPrJSON(raw []byte) (PullRequest, error) {
	var payload struct {
		URL    string `json:"url"`
		Number int    `json:"number"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return PullRequest{}, err
	}
	return PullRequest{URL: payload.URL, Number: payload.Number}, nil
}
