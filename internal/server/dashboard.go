package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>ipintel</title>
    <meta name="description" content="IP risk screening for payment transactions">
    <link rel="icon" href="data:image/svg+xml,<svg xmlns='http://www.w3.org/2000/svg' viewBox='0 0 100 100'><text y='.9em' font-size='90'>◎</text></svg>">
    <link rel="preconnect" href="https://fonts.googleapis.com">
    <link rel="preconnect" href="https://fonts.gstatic.com" crossorigin>
    <link href="https://fonts.googleapis.com/css2?family=Inter:wght@400;500;600&family=JetBrains+Mono:wght@400;500&display=swap" rel="stylesheet">
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }

        :root {
            --bg: #09090b;
            --bg-subtle: #18181b;
            --border: #27272a;
            --text: #fafafa;
            --text-secondary: #a1a1aa;
            --text-tertiary: #52525b;
            --accent: #22c55e;
            --critical: #ef4444;
            --high: #f59e0b;
            --medium: #3b82f6;
            --low: #22c55e;
        }

        body {
            font-family: 'Inter', -apple-system, sans-serif;
            background: var(--bg);
            color: var(--text);
            min-height: 100vh;
            font-size: 14px;
            line-height: 1.5;
            -webkit-font-smoothing: antialiased;
        }

        .mono {
            font-family: 'JetBrains Mono', monospace;
        }

        /* Layout */
        .container {
            max-width: 1200px;
            margin: 0 auto;
            padding: 0 24px;
        }

        /* Header */
        header {
            border-bottom: 1px solid var(--border);
            padding: 16px 0;
            position: sticky;
            top: 0;
            background: var(--bg);
            z-index: 100;
        }

        .header-inner {
            display: flex;
            justify-content: space-between;
            align-items: center;
        }

        .logo {
            display: flex;
            align-items: center;
            gap: 10px;
            text-decoration: none;
            color: var(--text);
        }

        .logo-mark { font-size: 22px; color: var(--accent); }

        .logo-text {
            font-weight: 600;
            font-size: 15px;
        }

        nav {
            display: flex;
            gap: 32px;
        }

        nav a {
            color: var(--text-secondary);
            text-decoration: none;
            font-size: 13px;
            transition: color 0.15s;
        }

        nav a:hover, nav a.active {
            color: var(--text);
        }

        /* Hero metrics */
        .hero {
            padding: 48px 0;
            border-bottom: 1px solid var(--border);
        }

        .hero-label {
            font-size: 12px;
            text-transform: uppercase;
            letter-spacing: 0.05em;
            color: var(--text-tertiary);
            margin-bottom: 8px;
        }

        .hero-value {
            font-size: 56px;
            font-weight: 600;
            letter-spacing: -0.02em;
            line-height: 1;
        }

        .hero-meta {
            margin-top: 16px;
            display: flex;
            gap: 24px;
        }

        .hero-stat {
            display: flex;
            align-items: baseline;
            gap: 6px;
        }

        .hero-stat-value {
            font-weight: 500;
        }

        .hero-stat-label {
            color: var(--text-tertiary);
            font-size: 13px;
        }

        /* Grid layout */
        .grid {
            display: grid;
            grid-template-columns: 1fr 320px;
            gap: 1px;
            background: var(--border);
            margin: 0 -24px;
        }

        .grid > * {
            background: var(--bg);
            padding: 24px;
        }

        /* Section headers */
        .section-header {
            display: flex;
            justify-content: space-between;
            align-items: center;
            margin-bottom: 20px;
        }

        .section-title {
            font-size: 12px;
            text-transform: uppercase;
            letter-spacing: 0.05em;
            color: var(--text-tertiary);
        }

        .live-indicator {
            display: flex;
            align-items: center;
            gap: 6px;
            font-size: 12px;
            color: var(--text-tertiary);
        }

        .live-dot {
            width: 6px;
            height: 6px;
            background: var(--accent);
            border-radius: 50%;
            animation: pulse 2s ease-in-out infinite;
        }

        .live-dot.disconnected {
            background: var(--critical);
            animation: none;
        }

        @keyframes pulse {
            0%, 100% { opacity: 1; }
            50% { opacity: 0.4; }
        }

        /* Screening stream */
        .stream {
            display: flex;
            flex-direction: column;
        }

        .screening {
            display: grid;
            grid-template-columns: 56px 1fr auto auto;
            gap: 16px;
            padding: 14px 0;
            border-bottom: 1px solid var(--border);
            align-items: center;
        }

        .screening:last-child {
            border-bottom: none;
        }

        .screening.new {
            animation: slideIn 0.3s ease-out;
        }

        @keyframes slideIn {
            from { opacity: 0; transform: translateY(-8px); }
            to { opacity: 1; transform: translateY(0); }
        }

        .score-badge {
            display: inline-flex;
            align-items: center;
            justify-content: center;
            width: 44px;
            padding: 4px 0;
            border-radius: 6px;
            font-weight: 600;
            font-size: 13px;
        }

        .score-badge.critical { background: rgba(239,68,68,0.15); color: var(--critical); }
        .score-badge.high { background: rgba(245,158,11,0.15); color: var(--high); }
        .score-badge.medium { background: rgba(59,130,246,0.15); color: var(--medium); }
        .score-badge.low { background: rgba(34,197,94,0.12); color: var(--low); }

        .screening-detail {
            min-width: 0;
        }

        .screening-ip {
            font-weight: 500;
            white-space: nowrap;
            overflow: hidden;
            text-overflow: ellipsis;
        }

        .screening-route {
            font-size: 12px;
            color: var(--text-secondary);
        }

        .screening-route .mismatch { color: var(--high); }

        .screening-verdict {
            font-size: 12px;
            white-space: nowrap;
            color: var(--text-secondary);
        }

        .screening-verdict.blocked {
            color: var(--critical);
            font-weight: 500;
        }

        .screening-time {
            color: var(--text-tertiary);
            font-size: 12px;
            white-space: nowrap;
        }

        .rep-update {
            padding: 10px 0;
            border-bottom: 1px solid var(--border);
            font-size: 12px;
            color: var(--text-tertiary);
        }

        /* Filter buttons */
        .filters {
            display: flex;
            gap: 8px;
        }

        .filter-btn {
            background: var(--bg-subtle);
            border: 1px solid var(--border);
            color: var(--text-secondary);
            font-size: 12px;
            padding: 4px 10px;
            border-radius: 6px;
            cursor: pointer;
            transition: color 0.15s, border-color 0.15s;
        }

        .filter-btn:hover { color: var(--text); }

        .filter-btn.active {
            color: var(--text);
            border-color: var(--text-tertiary);
        }

        /* Sidebar sections */
        .sidebar-section {
            margin-bottom: 32px;
        }

        .sidebar-section:last-child {
            margin-bottom: 0;
        }

        .block-row {
            display: flex;
            justify-content: space-between;
            padding: 8px 0;
            border-bottom: 1px solid var(--border);
            font-size: 13px;
        }

        .block-row:last-child { border-bottom: none; }

        .country-row {
            display: grid;
            grid-template-columns: 40px 1fr 32px;
            gap: 8px;
            padding: 6px 0;
            align-items: center;
            font-size: 13px;
        }

        .country-bar {
            height: 4px;
            background: var(--border);
            border-radius: 2px;
            overflow: hidden;
        }

        .country-bar-fill {
            height: 100%;
            background: var(--medium);
            border-radius: 2px;
            transition: width 0.3s ease;
        }

        .country-count {
            text-align: right;
            color: var(--text-tertiary);
            font-size: 12px;
        }

        /* Empty state */
        .empty {
            text-align: center;
            padding: 48px 24px;
            color: var(--text-tertiary);
        }

        /* Footer */
        footer {
            border-top: 1px solid var(--border);
            padding: 24px 0;
            margin-top: 48px;
        }

        .footer-inner {
            display: flex;
            justify-content: space-between;
            align-items: center;
        }

        .footer-links {
            display: flex;
            gap: 24px;
        }

        .footer-links a {
            color: var(--text-tertiary);
            text-decoration: none;
            font-size: 13px;
            transition: color 0.15s;
        }

        .footer-links a:hover {
            color: var(--text-secondary);
        }

        /* Responsive */
        @media (max-width: 900px) {
            .grid {
                grid-template-columns: 1fr;
            }
            .hero-value {
                font-size: 42px;
            }
        }
    </style>
</head>
<body>
    <header>
        <div class="container header-inner">
            <a href="/" class="logo">
                <span class="logo-mark">◎</span>
                <span class="logo-text">ipintel</span>
            </a>
            <nav>
                <a href="/" class="active">Live Feed</a>
                <a href="/api">API</a>
                <a href="/health">Health</a>
                <a href="/metrics">Metrics</a>
            </nav>
        </div>
    </header>

    <main class="container">
        <section class="hero">
            <div class="hero-label">Screenings This Session</div>
            <div class="hero-value mono" id="total-screenings">0</div>
            <div class="hero-meta">
                <div class="hero-stat">
                    <span class="hero-stat-value mono" id="flagged-count" style="color:var(--high)">0</span>
                    <span class="hero-stat-label">flagged</span>
                </div>
                <div class="hero-stat">
                    <span class="hero-stat-value mono" id="blocked-count" style="color:var(--critical)">0</span>
                    <span class="hero-stat-label">blocked</span>
                </div>
                <div class="hero-stat">
                    <span class="hero-stat-value mono" id="clean-count" style="color:var(--low)">0</span>
                    <span class="hero-stat-label">clean</span>
                </div>
            </div>
        </section>

        <div class="grid">
            <section>
                <div class="section-header">
                    <span class="section-title">Screening Stream</span>
                    <div class="filters">
                        <button class="filter-btn active" data-min="0">All</button>
                        <button class="filter-btn" data-min="60">High+</button>
                        <button class="filter-btn" data-min="90">Critical</button>
                    </div>
                    <span class="live-indicator">
                        <span class="live-dot" id="live-dot"></span>
                        <span id="live-label">Connecting</span>
                    </span>
                </div>
                <div class="stream" id="stream">
                    <div class="empty">Waiting for screenings...</div>
                </div>
            </section>

            <aside>
                <div class="sidebar-section">
                    <div class="section-header">
                        <span class="section-title">Recent Blocks</span>
                    </div>
                    <div id="recent-blocks">
                        <div class="empty" style="padding:16px">None yet</div>
                    </div>
                </div>

                <div class="sidebar-section">
                    <div class="section-header">
                        <span class="section-title">Detected Countries</span>
                    </div>
                    <div id="country-tally">
                        <div class="empty" style="padding:16px">No data yet</div>
                    </div>
                </div>
            </aside>
        </div>
    </main>

    <footer>
        <div class="container footer-inner">
            <div class="footer-links">
                <a href="/api">API Info</a>
                <a href="/v1/auth/info">Auth</a>
                <a href="/v1/webhooks/events">Webhook Events</a>
                <a href="/docs">Docs</a>
            </div>
        </div>
    </footer>

    <script>
        // Escape HTML to prevent XSS
        function escapeHtml(text) {
            if (text == null) return '';
            const div = document.createElement('div');
            div.textContent = String(text);
            return div.innerHTML;
        }

        function timeAgo(timestamp) {
            const now = Date.now();
            const then = new Date(timestamp).getTime();
            const diff = Math.floor((now - then) / 1000);

            if (diff < 5) return 'now';
            if (diff < 60) return diff + 's';
            if (diff < 3600) return Math.floor(diff / 60) + 'm';
            return Math.floor(diff / 3600) + 'h';
        }

        // Session counters
        let totals = { screenings: 0, flagged: 0, blocked: 0, clean: 0 };
        let countries = {};
        let blocks = [];
        const maxRows = 30;

        function renderScreening(d, ts, isNew) {
            const level = d.risk_level || 'low';
            const match = d.countries_match;
            const route = escapeHtml(d.user_country) +
                ' → ' + escapeHtml(d.detected_country) +
                (match ? '' : ' <span class="mismatch">mismatch</span>');
            const verdict = d.should_block
                ? '<span class="screening-verdict blocked">BLOCK</span>'
                : '<span class="screening-verdict">' + escapeHtml(d.recommendation || 'Approve') + '</span>';

            return '<div class="screening' + (isNew ? ' new' : '') + '">' +
                '<span class="score-badge ' + escapeHtml(level) + ' mono">' + escapeHtml(d.risk_score) + '</span>' +
                '<div class="screening-detail">' +
                    '<div class="screening-ip mono">' + escapeHtml(d.ip_address) + '</div>' +
                    '<div class="screening-route">' + route + '</div>' +
                '</div>' +
                verdict +
                '<span class="screening-time mono">' + timeAgo(ts) + '</span>' +
            '</div>';
        }

        function renderRepUpdate(d, ts) {
            return '<div class="rep-update mono">cache seed: ' + escapeHtml(d.ip) +
                ' → ' + escapeHtml(d.tier) + ' (' + escapeHtml(d.country) + ')</div>';
        }

        function updateHero() {
            document.getElementById('total-screenings').textContent = totals.screenings;
            document.getElementById('flagged-count').textContent = totals.flagged;
            document.getElementById('blocked-count').textContent = totals.blocked;
            document.getElementById('clean-count').textContent = totals.clean;
        }

        function updateBlocks() {
            const el = document.getElementById('recent-blocks');
            if (blocks.length === 0) return;
            el.innerHTML = blocks.slice(0, 8).map(b =>
                '<div class="block-row"><span class="mono">' + escapeHtml(b.ip) + '</span>' +
                '<span style="color:var(--critical)" class="mono">' + escapeHtml(b.score) + '</span></div>'
            ).join('');
        }

        function updateCountries() {
            const el = document.getElementById('country-tally');
            const entries = Object.entries(countries).sort((a, b) => b[1] - a[1]).slice(0, 8);
            if (entries.length === 0) return;
            const max = entries[0][1];
            el.innerHTML = entries.map(([code, n]) =>
                '<div class="country-row">' +
                    '<span class="mono">' + escapeHtml(code) + '</span>' +
                    '<div class="country-bar"><div class="country-bar-fill" style="width:' + (n / max * 100) + '%"></div></div>' +
                    '<span class="country-count mono">' + n + '</span>' +
                '</div>'
            ).join('');
        }

        let firstEvent = true;

        function handleEvent(event) {
            const stream = document.getElementById('stream');
            if (firstEvent) {
                stream.innerHTML = '';
                firstEvent = false;
            }

            let html = '';
            if (event.type === 'screening') {
                const d = event.data || {};
                totals.screenings++;
                if (d.risk_level === 'high' || d.risk_level === 'critical') totals.flagged++;
                if (d.should_block) {
                    totals.blocked++;
                    blocks.unshift({ ip: d.ip_address, score: d.risk_score });
                }
                if (d.risk_level === 'low') totals.clean++;
                if (d.detected_country) {
                    countries[d.detected_country] = (countries[d.detected_country] || 0) + 1;
                }
                html = renderScreening(d, event.timestamp, true);
                updateHero();
                updateBlocks();
                updateCountries();
            } else if (event.type === 'reputation_update') {
                html = renderRepUpdate(event.data || {}, event.timestamp);
            } else {
                return;
            }

            stream.insertAdjacentHTML('afterbegin', html);
            while (stream.children.length > maxRows) {
                stream.removeChild(stream.lastChild);
            }
        }

        // WebSocket with reconnect
        let ws = null;
        let minScore = 0;
        let retryDelay = 1000;

        function setLive(connected) {
            const dot = document.getElementById('live-dot');
            const label = document.getElementById('live-label');
            dot.classList.toggle('disconnected', !connected);
            label.textContent = connected ? 'Live' : 'Reconnecting';
        }

        function sendSubscription() {
            if (!ws || ws.readyState !== WebSocket.OPEN) return;
            if (minScore > 0) {
                ws.send(JSON.stringify({
                    all_events: false,
                    event_types: ['screening'],
                    min_score: minScore
                }));
            } else {
                ws.send(JSON.stringify({ all_events: true }));
            }
        }

        function connect() {
            const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
            ws = new WebSocket(proto + '//' + location.host + '/ws');

            ws.onopen = () => {
                setLive(true);
                retryDelay = 1000;
                sendSubscription();
            };

            ws.onmessage = (msg) => {
                try {
                    handleEvent(JSON.parse(msg.data));
                } catch (e) { /* ignore malformed frames */ }
            };

            ws.onclose = () => {
                setLive(false);
                setTimeout(connect, retryDelay);
                retryDelay = Math.min(retryDelay * 2, 15000);
            };
        }

        // Filter buttons resend the subscription
        document.querySelectorAll('.filter-btn').forEach(btn => {
            btn.addEventListener('click', () => {
                document.querySelectorAll('.filter-btn').forEach(b => b.classList.remove('active'));
                btn.classList.add('active');
                minScore = parseInt(btn.dataset.min, 10) || 0;
                sendSubscription();
            });
        });

        connect();
    </script>
</body>
</html>`

// dashboardHandler serves the live screening feed
func dashboardHandler(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, dashboardHTML)
}
