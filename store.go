package txcontroller

// Store access. The transaction list is mutated only through full-list
// copy-and-replace: readers holding the previously published state never see
// a partial update, and the container notifies its subscribers synchronously
// after each replacement.

// Transactions returns the currently published, ordered record list
func (c *TxController) Transactions() []*TxRecord {
	return c.state.State().Transactions
}

// TransactionByID returns the tracked record with the given id, or nil
func (c *TxController) TransactionByID(id string) *TxRecord {
	for _, rec := range c.Transactions() {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

// lookupLocked finds a record by id. Callers hold storeMu.
func (c *TxController) lookupLocked(id string) *TxRecord {
	for _, rec := range c.state.State().Transactions {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

// replaceLocked swaps the record with the same id for next in a fresh list
// and republishes. Callers hold storeMu.
func (c *TxController) replaceLocked(next *TxRecord) {
	s := c.state.State()
	txs := make([]*TxRecord, len(s.Transactions))
	copy(txs, s.Transactions)
	for i, rec := range txs {
		if rec.ID == next.ID {
			txs[i] = next
			break
		}
	}
	s.Transactions = txs
	c.state.Replace(s)
}

// addTx appends the record to a fresh list and republishes
func (c *TxController) addTx(rec *TxRecord) {
	c.storeMu.Lock()
	defer c.storeMu.Unlock()

	s := c.state.State()
	txs := make([]*TxRecord, 0, len(s.Transactions)+1)
	txs = append(txs, s.Transactions...)
	txs = append(txs, rec)
	s.Transactions = txs
	c.state.Replace(s)
}

// removeTx drops the record with the given id, if present
func (c *TxController) removeTx(id string) {
	c.storeMu.Lock()
	defer c.storeMu.Unlock()

	s := c.state.State()
	txs := make([]*TxRecord, 0, len(s.Transactions))
	for _, rec := range s.Transactions {
		if rec.ID != id {
			txs = append(txs, rec)
		}
	}
	if len(txs) == len(s.Transactions) {
		return
	}
	s.Transactions = txs
	c.state.Replace(s)
}

// swapTx atomically removes the record with oldID and appends replacement,
// publishing a single state update
func (c *TxController) swapTx(oldID string, replacement *TxRecord) {
	c.storeMu.Lock()
	defer c.storeMu.Unlock()

	s := c.state.State()
	txs := make([]*TxRecord, 0, len(s.Transactions))
	for _, rec := range s.Transactions {
		if rec.ID != oldID {
			txs = append(txs, rec)
		}
	}
	txs = append(txs, replacement)
	s.Transactions = txs
	c.state.Replace(s)
}

// WipeTransactions removes every record scoped to the given chain context.
// Records from other chains are untouched.
func (c *TxController) WipeTransactions(chain ChainContext) int {
	c.storeMu.Lock()
	defer c.storeMu.Unlock()

	s := c.state.State()
	txs := make([]*TxRecord, 0, len(s.Transactions))
	wiped := 0
	for _, rec := range s.Transactions {
		if rec.Chain == chain {
			wiped++
			continue
		}
		txs = append(txs, rec)
	}
	if wiped == 0 {
		return 0
	}
	s.Transactions = txs
	c.state.Replace(s)
	return wiped
}
