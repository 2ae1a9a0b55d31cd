package gateway

import (
	"context"
	"sync"
)

type SpreadsheetsMock struct {
	lock sync.Mutex
	rows map[string][][]string
}

func (c *SpreadsheetsMock) AppendRow(ctx context.Context, spreadsheetName string, row []string) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.rows == nil {
		c.rows = make(map[string][][]string)
	}

	c.rows[spreadsheetName] = append(c.rows[spreadsheetName], row)

	return nil
}

func (c *SpreadsheetsMock) Rows(spreadsheetName string) [][]string {
	c.lock.Lock()
	defer c.lock.Unlock()

	return append([][]string(nil), c.rows[spreadsheetName]...)
}
