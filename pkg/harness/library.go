package harness

// The list node types are emitted only when user code does not declare its
// own ListNode. The helpers below accept any node with val and next.

const pythonNode = `class ListNode:
    def __init__(self, val=0, next=None):
        self.val = val
        self.next = next

    def __repr__(self):
        return f'ListNode({self.val})'

    def to_list(self):
        out = []
        node = self
        while node:
            out.append(node.val)
            node = node.next
        return out
`

const javascriptNode = `class ListNode {
    constructor(val = 0, next = null) {
        this.val = val;
        this.next = next;
    }

    toList() {
        const out = [];
        let node = this;
        while (node) {
            out.push(node.val);
            node = node.next;
        }
        return out;
    }
}
`

const typescriptNode = `class ListNode {
    val: any;
    next: ListNode | null;

    constructor(val: any = 0, next: ListNode | null = null) {
        this.val = val;
        this.next = next;
    }

    toList(): any[] {
        const out: any[] = [];
        let node: ListNode | null = this;
        while (node) {
            out.push(node.val);
            node = node.next;
        }
        return out;
    }
}
`

const pythonLibrary = `import copy as __copy
import json as __json


def create_linked_list(arr):
    if not arr:
        return None
    head = ListNode(arr[0])
    node = head
    for val in arr[1:]:
        node.next = ListNode(val)
        node = node.next
    return head


def __from_linked_list(value):
    if value is None:
        return []
    if hasattr(value, 'to_list'):
        return value.to_list()
    if hasattr(value, 'val') and hasattr(value, 'next'):
        out = []
        while value is not None:
            out.append(value.val)
            value = value.next
        return out
    return value


def __encode(value):
    return __json.dumps(value, sort_keys=True, allow_nan=False)


def __check(results, index, data, expected, actual):
    try:
        passed = __encode(actual) == __encode(expected)
    except (TypeError, ValueError):
        actual, passed = repr(actual), False
    results.append({'input': data, 'expected': expected, 'actual': actual, 'passed': passed})
    print(f"Test {index}: {'PASS' if passed else 'FAIL'}")


def __fail(results, index, data, expected, err):
    results.append({'input': data, 'expected': expected, 'actual': f'Error: {err}', 'passed': False})
    print(f'Test {index}: ERROR - {err}')


def __finish(results):
    print('\n' + __json.dumps(results, indent=2, allow_nan=False))
`

const pythonLoadFile = `def __load_cases():
    with open('cases.json', encoding='utf-8') as f:
        return __json.load(f)
`

const javascriptLibrary = `function createLinkedList(arr) {
    if (!arr || arr.length === 0) return null;
    const head = new ListNode(arr[0]);
    let node = head;
    for (let i = 1; i < arr.length; i++) {
        node.next = new ListNode(arr[i]);
        node = node.next;
    }
    return head;
}

function __fromLinkedList(value) {
    if (value === null) return [];
    if (value === undefined || typeof value !== 'object') return value;
    if (typeof value.toList === 'function') return value.toList();
    if ('val' in value && 'next' in value) {
        const out = [];
        for (let node = value; node; node = node.next) out.push(node.val);
        return out;
    }
    return value;
}

function __clone(value) {
    return value === undefined ? value : JSON.parse(JSON.stringify(value));
}

function __encode(value) {
    return JSON.stringify(value, (key, val) => {
        if (val && typeof val === 'object' && !Array.isArray(val)) {
            return Object.keys(val).sort().reduce((acc, k) => {
                acc[k] = val[k];
                return acc;
            }, {});
        }
        return val;
    });
}

function __errorMessage(err) {
    return err instanceof Error ? err.message : String(err);
}

function __check(results, index, data, expected, actual) {
    if (actual === undefined) actual = null;
    const passed = __encode(actual) === __encode(expected);
    results.push({ input: data, expected: expected, actual: actual, passed: passed });
    console.log('Test ' + index + ': ' + (passed ? 'PASS' : 'FAIL'));
}

function __fail(results, index, data, expected, err) {
    const message = __errorMessage(err);
    results.push({ input: data, expected: expected, actual: 'Error: ' + message, passed: false });
    console.log('Test ' + index + ': ERROR - ' + message);
}

function __finish(results) {
    console.log('\n' + JSON.stringify(results, null, 2));
}
`

const javascriptLoadFile = `function __loadCases() {
    return JSON.parse(require('fs').readFileSync('cases.json', 'utf8'));
}
`

const typescriptLibrary = `function createLinkedList(arr: any[]): any {
    if (!arr || arr.length === 0) return null;
    const head: any = new (ListNode as any)(arr[0]);
    let node: any = head;
    for (let i = 1; i < arr.length; i++) {
        node.next = new (ListNode as any)(arr[i]);
        node = node.next;
    }
    return head;
}

function __fromLinkedList(value: any): any {
    if (value === null) return [];
    if (value === undefined || typeof value !== 'object') return value;
    if (typeof value.toList === 'function') return value.toList();
    if ('val' in value && 'next' in value) {
        const out: any[] = [];
        for (let node: any = value; node; node = node.next) out.push(node.val);
        return out;
    }
    return value;
}

function __clone(value: any): any {
    return value === undefined ? value : JSON.parse(JSON.stringify(value));
}

function __encode(value: any): string | undefined {
    return JSON.stringify(value);
}

function __errorMessage(err: any): string {
    return err instanceof Error ? err.message : String(err);
}

function __check(results: any[], index: number, data: any, expected: any, actual: any): void {
    if (actual === undefined) actual = null;
    const passed = __encode(actual) === __encode(expected);
    results.push({ input: data, expected: expected, actual: actual, passed: passed });
    console.log('Test ' + index + ': ' + (passed ? 'PASS' : 'FAIL'));
}

function __fail(results: any[], index: number, data: any, expected: any, err: any): void {
    const message = __errorMessage(err);
    results.push({ input: data, expected: expected, actual: 'Error: ' + message, passed: false });
    console.log('Test ' + index + ': ERROR - ' + message);
}

function __finish(results: any[]): void {
    console.log('\n' + JSON.stringify(results, null, 2));
}
`

const typescriptLoadFile = `declare const require: any;

function __loadCases(): any[] {
    return JSON.parse(require('fs').readFileSync('cases.json', 'utf8'));
}
`
