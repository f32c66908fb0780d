package jobs

// worker はキューが閉じられるまでジョブを1件ずつ処理します。
func (m *Manager) worker(id int) {
	defer m.wg.Done()
	m.logger.Debug().Int("worker", id).Msg("print worker started")
	for t := range m.tasks {
		m.handleTask(t)
	}
	m.logger.Debug().Int("worker", id).Msg("print worker stopped")
}
