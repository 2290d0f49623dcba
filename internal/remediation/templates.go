package remediation

// templates holds the per-vulnerability-type remediation guidance.
var templates = map[string]*template{
	"sql_injection": {
		description: "Use parameterized queries or prepared statements to prevent SQL injection. Never concatenate user input directly into SQL queries.",
		priority:    PriorityImmediate,
		effort:      "medium",
		steps: []string{
			"Identify all SQL queries that use user input",
			"Replace string concatenation with parameterized queries",
			"Use an ORM or query builder when possible",
			"Implement input validation as defense in depth",
			"Add SQL injection tests to your CI/CD pipeline",
		},
		references: []string{
			"https://cheatsheetseries.owasp.org/cheatsheets/Query_Parameterization_Cheat_Sheet.html",
			"https://cwe.mitre.org/data/definitions/89.html",
		},
		exampleOrder: []Language{LangPython, LangJavaScript, LangJava, LangGo},
		codeExamples: map[Language]string{
			LangPython: `# VULNERABLE CODE - DO NOT USE
query = f"SELECT * FROM users WHERE id = {user_id}"

# SECURE CODE - Use parameterized queries
import psycopg2

# Option 1: Parameterized query
cursor.execute("SELECT * FROM users WHERE id = %s", (user_id,))

# Option 2: Using SQLAlchemy ORM
from sqlalchemy import select
user = session.execute(
    select(User).where(User.id == user_id)
).scalar_one()

# Option 3: Using Django ORM
user = User.objects.get(id=user_id)`,

			LangJavaScript: "// VULNERABLE CODE - DO NOT USE\nconst query = `SELECT * FROM users WHERE id = ${userId}`;\n" + `
// SECURE CODE - Use parameterized queries

// Option 1: Using pg (node-postgres)
const result = await pool.query(
  'SELECT * FROM users WHERE id = $1',
  [userId]
);

// Option 2: Using Prisma ORM
const user = await prisma.user.findUnique({
  where: { id: userId }
});

// Option 3: Using Knex query builder
const user = await knex('users')
  .where('id', userId)
  .first();`,

			LangJava: `// VULNERABLE CODE - DO NOT USE
String query = "SELECT * FROM users WHERE id = " + userId;

// SECURE CODE - Use PreparedStatement
String sql = "SELECT * FROM users WHERE id = ?";
PreparedStatement stmt = connection.prepareStatement(sql);
stmt.setInt(1, userId);
ResultSet rs = stmt.executeQuery();

// Using JPA/Hibernate
@Query("SELECT u FROM User u WHERE u.id = :id")
User findById(@Param("id") Long id);

// Using Spring Data JPA
User user = userRepository.findById(userId);`,

			LangGo: `// VULNERABLE CODE - DO NOT USE
query := fmt.Sprintf("SELECT * FROM users WHERE id = %s", userID)

// SECURE CODE - Use parameterized queries
row := db.QueryRow("SELECT * FROM users WHERE id = $1", userID)

// Using GORM
var user User
db.First(&user, userID)`,
		},
	},

	"xss": {
		description: "Encode all user-supplied data before rendering in HTML context. Use Content Security Policy (CSP) headers and modern frameworks that auto-escape output.",
		priority:    PriorityImmediate,
		effort:      "medium",
		steps: []string{
			"Enable automatic output encoding in your framework",
			"Implement Content-Security-Policy headers",
			"Validate and sanitize user input",
			"Use HTTPOnly and Secure flags on cookies",
			"Add XSS tests to your security testing suite",
		},
		references: []string{
			"https://cheatsheetseries.owasp.org/cheatsheets/Cross_Site_Scripting_Prevention_Cheat_Sheet.html",
			"https://cwe.mitre.org/data/definitions/79.html",
		},
		exampleOrder: []Language{LangJavaScript, LangPython},
		codeExamples: map[Language]string{
			LangJavaScript: `// VULNERABLE CODE - DO NOT USE
element.innerHTML = userInput;

// SECURE CODE

// Option 1: Use textContent instead of innerHTML
element.textContent = userInput;

// Option 2: Use DOMPurify for HTML content
import DOMPurify from 'dompurify';
element.innerHTML = DOMPurify.sanitize(userInput);

// Option 3: React auto-escapes by default
function Component({ userInput }) {
  return <div>{userInput}</div>; // Safe - auto-escaped
}

// Add CSP headers (Express.js)
app.use(helmet.contentSecurityPolicy({
  directives: {
    defaultSrc: ["'self'"],
    scriptSrc: ["'self'"],
    styleSrc: ["'self'", "'unsafe-inline'"],
  }
}));`,

			LangPython: `# Django - Auto-escapes by default
# Templates: {{ user_input }} is safe

# If you need to render HTML, mark it safe explicitly
from django.utils.html import escape
safe_content = escape(user_input)

# Flask - Use Jinja2 auto-escaping
# {{ user_input }} is auto-escaped
# {{ user_input|safe }} bypasses escaping - avoid!

# Add CSP headers
from flask import Flask
from flask_talisman import Talisman

app = Flask(__name__)
Talisman(app, content_security_policy={
    'default-src': "'self'",
    'script-src': "'self'"
})`,
		},
	},

	"bola": {
		description: "Implement proper authorization checks before accessing any object. Verify the authenticated user has permission to access the requested resource.",
		priority:    PriorityImmediate,
		effort:      "medium",
		steps: []string{
			"Implement authorization checks on every data access",
			"Use indirect object references (UUIDs) instead of sequential IDs",
			"Verify object ownership before returning data",
			"Implement role-based or attribute-based access control",
			"Log and monitor access attempts",
		},
		references: []string{
			"https://owasp.org/API-Security/editions/2023/en/0xa1-broken-object-level-authorization/",
			"https://cwe.mitre.org/data/definitions/639.html",
		},
		exampleOrder: []Language{LangJavaScript, LangPython},
		codeExamples: map[Language]string{
			LangJavaScript: `// VULNERABLE CODE - No authorization check
app.get('/api/orders/:orderId', async (req, res) => {
  const order = await Order.findById(req.params.orderId);
  res.json(order);
});

// SECURE CODE - With authorization check
app.get('/api/orders/:orderId', authenticate, async (req, res) => {
  const order = await Order.findById(req.params.orderId);

  if (!order) {
    return res.status(404).json({ error: 'Order not found' });
  }

  // Verify the authenticated user owns this order
  if (order.userId !== req.user.id) {
    // Log potential attack
    logger.warn('Unauthorized access attempt: user ' + req.user.id + ' tried to access order ' + order.id);
    return res.status(403).json({ error: 'Forbidden' });
  }

  res.json(order);
});

// Even better: Query with user filter
app.get('/api/orders/:orderId', authenticate, async (req, res) => {
  const order = await Order.findOne({
    _id: req.params.orderId,
    userId: req.user.id  // Ensures ownership
  });

  if (!order) {
    return res.status(404).json({ error: 'Order not found' });
  }

  res.json(order);
});`,

			LangPython: `# VULNERABLE CODE - No authorization check
@app.get("/orders/{order_id}")
async def get_order(order_id: int):
    return await Order.get(order_id)

# SECURE CODE - With authorization check
@app.get("/orders/{order_id}")
async def get_order(
    order_id: int,
    current_user: User = Depends(get_current_user)
):
    order = await Order.get(order_id)

    if not order:
        raise HTTPException(status_code=404, detail="Order not found")

    # Verify ownership
    if order.user_id != current_user.id:
        logger.warning(
            f"Unauthorized access: User {current_user.id} "
            f"attempted to access order {order_id}"
        )
        raise HTTPException(status_code=403, detail="Forbidden")

    return order

# Better: Use scoped queries
@app.get("/orders/{order_id}")
async def get_order(
    order_id: int,
    current_user: User = Depends(get_current_user)
):
    order = await Order.filter(
        id=order_id,
        user_id=current_user.id  # Scoped to user
    ).first()

    if not order:
        raise HTTPException(status_code=404, detail="Order not found")

    return order`,
		},
	},

	"broken_auth": {
		description: "Implement secure authentication mechanisms including strong password policies, MFA, secure session management, and account lockout.",
		priority:    PriorityImmediate,
		effort:      "high",
		steps: []string{
			"Enforce strong password requirements",
			"Implement multi-factor authentication (MFA)",
			"Use secure session management",
			"Implement account lockout after failed attempts",
			"Use secure password hashing (bcrypt, Argon2)",
			"Implement proper logout functionality",
		},
		references: []string{
			"https://cheatsheetseries.owasp.org/cheatsheets/Authentication_Cheat_Sheet.html",
			"https://owasp.org/API-Security/editions/2023/en/0xa2-broken-authentication/",
		},
		exampleOrder: []Language{LangJavaScript, LangPython},
		codeExamples: map[Language]string{
			LangJavaScript: `// Secure password hashing
const bcrypt = require('bcrypt');
const SALT_ROUNDS = 12;

// Hash password before storing
async function hashPassword(password) {
  return await bcrypt.hash(password, SALT_ROUNDS);
}

// Verify password
async function verifyPassword(password, hash) {
  return await bcrypt.compare(password, hash);
}

// Secure session configuration (Express.js)
const session = require('express-session');
const RedisStore = require('connect-redis').default;

app.use(session({
  store: new RedisStore({ client: redisClient }),
  secret: process.env.SESSION_SECRET,
  resave: false,
  saveUninitialized: false,
  cookie: {
    secure: true,        // HTTPS only
    httpOnly: true,      // No JS access
    sameSite: 'strict',  // CSRF protection
    maxAge: 15 * 60 * 1000  // 15 minutes
  }
}));

// Account lockout
const MAX_ATTEMPTS = 5;
const LOCKOUT_DURATION = 15 * 60 * 1000; // 15 minutes

async function handleLogin(email, password) {
  const user = await User.findByEmail(email);

  if (user.lockedUntil && user.lockedUntil > Date.now()) {
    throw new Error('Account is locked. Try again later.');
  }

  const isValid = await verifyPassword(password, user.passwordHash);

  if (!isValid) {
    user.failedAttempts += 1;
    if (user.failedAttempts >= MAX_ATTEMPTS) {
      user.lockedUntil = Date.now() + LOCKOUT_DURATION;
    }
    await user.save();
    throw new Error('Invalid credentials');
  }

  // Reset on successful login
  user.failedAttempts = 0;
  user.lockedUntil = null;
  await user.save();

  return user;
}`,

			LangPython: `# Secure password hashing with Argon2
from argon2 import PasswordHasher
from argon2.exceptions import VerifyMismatchError

ph = PasswordHasher()

def hash_password(password: str) -> str:
    return ph.hash(password)

def verify_password(password: str, hash: str) -> bool:
    try:
        ph.verify(hash, password)
        return True
    except VerifyMismatchError:
        return False

# JWT with proper configuration
from datetime import datetime, timedelta
from jose import jwt

SECRET_KEY = os.environ["JWT_SECRET"]
ALGORITHM = "HS256"
ACCESS_TOKEN_EXPIRE_MINUTES = 15

def create_access_token(data: dict) -> str:
    to_encode = data.copy()
    expire = datetime.utcnow() + timedelta(minutes=ACCESS_TOKEN_EXPIRE_MINUTES)
    to_encode.update({"exp": expire})
    return jwt.encode(to_encode, SECRET_KEY, algorithm=ALGORITHM)

# Rate limiting for login endpoint
from slowapi import Limiter
from slowapi.util import get_remote_address

limiter = Limiter(key_func=get_remote_address)

@app.post("/auth/login")
@limiter.limit("5/minute")  # Max 5 attempts per minute
async def login(credentials: LoginRequest):
    # ... authentication logic
    pass`,
		},
	},

	"rate_limiting": {
		description: "Implement rate limiting to prevent abuse, DoS attacks, and brute force attempts. Use sliding window or token bucket algorithms.",
		priority:    PriorityShortTerm,
		effort:      "low",
		steps: []string{
			"Identify endpoints that need rate limiting",
			"Choose appropriate limits based on use case",
			"Implement rate limiting middleware",
			"Return proper 429 status codes with Retry-After header",
			"Monitor and adjust limits based on traffic patterns",
		},
		references: []string{
			"https://owasp.org/API-Security/editions/2023/en/0xa4-unrestricted-resource-consumption/",
			"https://cloud.google.com/architecture/rate-limiting-strategies-techniques",
		},
		exampleOrder: []Language{LangJavaScript, LangPython},
		codeExamples: map[Language]string{
			LangJavaScript: `// Using express-rate-limit
const rateLimit = require('express-rate-limit');

// General API rate limit
const apiLimiter = rateLimit({
  windowMs: 15 * 60 * 1000, // 15 minutes
  max: 100,
  standardHeaders: true,
  legacyHeaders: false,
  message: {
    error: 'Too many requests',
    retryAfter: '15 minutes'
  }
});

// Strict limit for auth endpoints
const authLimiter = rateLimit({
  windowMs: 15 * 60 * 1000,
  max: 5,
  skipSuccessfulRequests: true
});

app.use('/api/', apiLimiter);
app.use('/api/auth/', authLimiter);

// Using Redis for distributed rate limiting
const RedisStore = require('rate-limit-redis');

const distributedLimiter = rateLimit({
  store: new RedisStore({
    client: redisClient,
    prefix: 'rl:'
  }),
  windowMs: 60 * 1000,
  max: 60
});`,

			LangPython: `# FastAPI with slowapi
from slowapi import Limiter, _rate_limit_exceeded_handler
from slowapi.util import get_remote_address
from slowapi.errors import RateLimitExceeded

limiter = Limiter(key_func=get_remote_address)
app.state.limiter = limiter
app.add_exception_handler(RateLimitExceeded, _rate_limit_exceeded_handler)

@app.get("/api/data")
@limiter.limit("100/minute")
async def get_data():
    return {"data": "..."}

@app.post("/api/auth/login")
@limiter.limit("5/minute")
async def login():
    return {"token": "..."}

# Django with django-ratelimit
from django_ratelimit.decorators import ratelimit

@ratelimit(key='ip', rate='100/m', block=True)
def api_view(request):
    return JsonResponse({"data": "..."})

# Custom user-based rate limiting
@ratelimit(key='user', rate='1000/h', block=True)
def premium_api_view(request):
    return JsonResponse({"data": "..."})`,
		},
	},

	"ssrf": {
		description: "Validate and sanitize all user-supplied URLs. Use allowlists for permitted domains and block internal network ranges.",
		priority:    PriorityImmediate,
		effort:      "medium",
		steps: []string{
			"Implement URL allowlist validation",
			"Block internal IP ranges (10.x, 172.16.x, 192.168.x, 127.x)",
			"Use a dedicated HTTP client with security settings",
			"Disable redirects or validate redirect destinations",
			"Consider using a proxy service for external requests",
		},
		references: []string{
			"https://cheatsheetseries.owasp.org/cheatsheets/Server_Side_Request_Forgery_Prevention_Cheat_Sheet.html",
			"https://owasp.org/API-Security/editions/2023/en/0xa7-server-side-request-forgery/",
		},
		exampleOrder: []Language{LangPython, LangJavaScript},
		codeExamples: map[Language]string{
			LangPython: `import ipaddress
from urllib.parse import urlparse
import socket

ALLOWED_DOMAINS = ['api.trusted-service.com', 'cdn.example.com']

def is_safe_url(url: str) -> bool:
    """Validate URL is safe to request"""
    try:
        parsed = urlparse(url)

        # Must be HTTPS
        if parsed.scheme != 'https':
            return False

        # Check against allowlist
        if parsed.hostname not in ALLOWED_DOMAINS:
            return False

        # Resolve hostname and check IP
        ip = socket.gethostbyname(parsed.hostname)
        ip_obj = ipaddress.ip_address(ip)

        # Block private/reserved ranges
        if ip_obj.is_private or ip_obj.is_loopback or ip_obj.is_reserved:
            return False

        return True

    except Exception:
        return False

@app.post("/api/fetch-url")
async def fetch_url(url: str):
    if not is_safe_url(url):
        raise HTTPException(
            status_code=400,
            detail="URL not allowed"
        )

    # Use timeout and disable redirects
    async with httpx.AsyncClient(
        timeout=10.0,
        follow_redirects=False
    ) as client:
        response = await client.get(url)

    return {"content": response.text}`,

			LangJavaScript: `const { URL } = require('url');
const dns = require('dns').promises;
const ipaddr = require('ipaddr.js');

const ALLOWED_DOMAINS = new Set([
  'api.trusted-service.com',
  'cdn.example.com'
]);

async function isUrlSafe(urlString) {
  try {
    const url = new URL(urlString);

    // Must be HTTPS
    if (url.protocol !== 'https:') {
      return false;
    }

    // Check allowlist
    if (!ALLOWED_DOMAINS.has(url.hostname)) {
      return false;
    }

    // Resolve and check IP
    const addresses = await dns.resolve4(url.hostname);
    for (const addr of addresses) {
      const ip = ipaddr.parse(addr);
      const range = ip.range();

      // Block private ranges
      if (['private', 'loopback', 'linkLocal', 'reserved'].includes(range)) {
        return false;
      }
    }

    return true;
  } catch {
    return false;
  }
}

app.post('/api/fetch-url', async (req, res) => {
  const { url } = req.body;

  if (!await isUrlSafe(url)) {
    return res.status(400).json({ error: 'URL not allowed' });
  }

  // Use axios with security settings
  const response = await axios.get(url, {
    timeout: 10000,
    maxRedirects: 0,  // Disable redirects
    validateStatus: (status) => status < 400
  });

  res.json({ content: response.data });
});`,
		},
	},

	"security_headers": {
		description: "Implement security headers to protect against common attacks like XSS, clickjacking, and MIME sniffing.",
		priority:    PriorityShortTerm,
		effort:      "low",
		steps: []string{
			"Add Content-Security-Policy header",
			"Add X-Content-Type-Options: nosniff",
			"Add X-Frame-Options: DENY",
			"Add Strict-Transport-Security header",
			"Remove server version headers",
		},
		references: []string{
			"https://cheatsheetseries.owasp.org/cheatsheets/HTTP_Headers_Cheat_Sheet.html",
			"https://securityheaders.com/",
		},
		exampleOrder: []Language{LangJavaScript, LangPython},
		codeExamples: map[Language]string{
			LangJavaScript: `// Express.js with Helmet
const helmet = require('helmet');

app.use(helmet({
  contentSecurityPolicy: {
    directives: {
      defaultSrc: ["'self'"],
      scriptSrc: ["'self'"],
      styleSrc: ["'self'", "'unsafe-inline'"],
      imgSrc: ["'self'", "data:", "https:"],
      connectSrc: ["'self'"],
      fontSrc: ["'self'"],
      objectSrc: ["'none'"],
      mediaSrc: ["'self'"],
      frameSrc: ["'none'"],
    },
  },
  hsts: {
    maxAge: 31536000,
    includeSubDomains: true,
    preload: true
  },
  frameguard: { action: 'deny' },
  noSniff: true,
  referrerPolicy: { policy: 'strict-origin-when-cross-origin' }
}));

// Hide Express
app.disable('x-powered-by');`,

			LangPython: `# FastAPI with secure headers middleware
from fastapi import FastAPI
from fastapi.middleware.trustedhost import TrustedHostMiddleware
from starlette.middleware.httpsredirect import HTTPSRedirectMiddleware

app = FastAPI()

# Force HTTPS
app.add_middleware(HTTPSRedirectMiddleware)

# Trusted hosts
app.add_middleware(
    TrustedHostMiddleware,
    allowed_hosts=["example.com", "*.example.com"]
)

# Security headers middleware
@app.middleware("http")
async def add_security_headers(request, call_next):
    response = await call_next(request)

    response.headers["Content-Security-Policy"] = (
        "default-src 'self'; "
        "script-src 'self'; "
        "style-src 'self' 'unsafe-inline'"
    )
    response.headers["X-Content-Type-Options"] = "nosniff"
    response.headers["X-Frame-Options"] = "DENY"
    response.headers["Strict-Transport-Security"] = (
        "max-age=31536000; includeSubDomains; preload"
    )
    response.headers["Referrer-Policy"] = "strict-origin-when-cross-origin"
    response.headers["Permissions-Policy"] = (
        "geolocation=(), microphone=(), camera=()"
    )

    return response`,
		},
	},
}
